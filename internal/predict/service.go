package predict

import (
	"context"
	"fmt"
	"math"

	"github.com/Skufu/heartrisk/internal/model"
)

const (
	RiskHigh = "High Risk"
	RiskLow  = "Low Risk"

	MessageHigh = "⚠️ High risk detected. Please consult a cardiologist immediately for a comprehensive evaluation."
	MessageLow  = "✅ Low risk detected. Maintain a healthy lifestyle and regular check-ups."
)

type Probability struct {
	NoDisease float64 `json:"no_disease"`
	Disease   float64 `json:"disease"`
}

// Outcome is the model's verdict for one vector, ready for display.
type Outcome struct {
	Label       int
	RiskLevel   string
	Probability Probability
	Message     string
}

type Service struct {
	clf model.Classifier
}

func NewService(clf model.Classifier) *Service {
	return &Service{clf: clf}
}

func (s *Service) Predict(ctx context.Context, v Vector) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	row := v[:]
	label, err := s.clf.Predict(row)
	if err != nil {
		return Outcome{}, fmt.Errorf("predict: %w", err)
	}
	proba, err := s.clf.PredictProba(row)
	if err != nil {
		return Outcome{}, fmt.Errorf("predict proba: %w", err)
	}
	if len(proba) != 2 {
		return Outcome{}, fmt.Errorf("expected 2 class probabilities, got %d", len(proba))
	}

	out := Outcome{
		Label: label,
		Probability: Probability{
			NoDisease: percent(proba[0]),
			Disease:   percent(proba[1]),
		},
	}
	if label == 1 {
		out.RiskLevel, out.Message = RiskHigh, MessageHigh
	} else {
		out.RiskLevel, out.Message = RiskLow, MessageLow
	}
	return out, nil
}

// percent converts a probability to a percentage with two decimals.
func percent(p float64) float64 {
	return math.Round(p*100*100) / 100
}
