package kafka

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"trialrun/internal/domain/execution"
	"trialrun/internal/ports"
)

const (
	messageTypeExecute = "execute"
	messageTypeDone    = "done"
)

// errorKindInfrastructure marks a result envelope whose execution never ran
// because the platform failed, so the UI never shows an outage as a wrong
// answer.
const errorKindInfrastructure = "infrastructure"

type requestEnvelope struct {
	Type        string           `json:"type"`
	ID          string           `json:"id"`
	ChallengeID string           `json:"challenge_id"`
	Track       string           `json:"track"`
	Source      string           `json:"source"`
	TestSpec    testSpecEnvelope `json:"test_spec"`
}

type testSpecEnvelope struct {
	Checks []checkSpecEnvelope `json:"checks"`
}

type checkSpecEnvelope struct {
	Name   string         `json:"name"`
	Points int            `json:"points"`
	Params map[string]any `json:"params,omitempty"`
}

type resultEnvelope struct {
	ID              string                `json:"id"`
	ChallengeID     string                `json:"challenge_id,omitempty"`
	Track           string                `json:"track,omitempty"`
	ErrorKind       string                `json:"error_kind,omitempty"`
	Error           string                `json:"error,omitempty"`
	Success         *bool                 `json:"success,omitempty"`
	Score           *int                  `json:"score,omitempty"`
	MaxScore        *int                  `json:"max_score,omitempty"`
	Checks          []checkResultEnvelope `json:"checks,omitempty"`
	Errors          []errorDetailEnvelope `json:"errors,omitempty"`
	Metrics         map[string]any        `json:"metrics,omitempty"`
	ExecutionTimeMs *int64                `json:"execution_time_ms,omitempty"`
	Timestamp       time.Time             `json:"timestamp"`
}

type checkResultEnvelope struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Points int    `json:"points"`
	Error  string `json:"error,omitempty"`
}

type errorDetailEnvelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func decodeRequestMessage(msg kafkago.Message) (ports.Submission, error) {
	var envelope requestEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return ports.Submission{}, fmt.Errorf("decode message: %w", err)
	}

	msgType := envelope.Type
	if msgType == "" {
		msgType = messageTypeExecute
	}

	switch msgType {
	case messageTypeExecute:
		return envelope.toSubmission(msg)
	case messageTypeDone:
		return ports.Submission{}, io.EOF
	default:
		return ports.Submission{}, fmt.Errorf("unknown message type %q", msgType)
	}
}

func (e requestEnvelope) toSubmission(msg kafkago.Message) (ports.Submission, error) {
	if e.Source == "" {
		return ports.Submission{}, fmt.Errorf("request message missing source")
	}
	if e.Track == "" {
		return ports.Submission{}, fmt.Errorf("request message missing track")
	}

	id := e.ID
	if id == "" {
		id = string(msg.Key)
	}
	if id == "" {
		id = fmt.Sprintf("%s:%d", msg.Topic, msg.Offset)
	}

	checks := make([]execution.CheckSpec, len(e.TestSpec.Checks))
	for idx, check := range e.TestSpec.Checks {
		checks[idx] = execution.CheckSpec{
			Name:   check.Name,
			Points: check.Points,
			Params: check.Params,
		}
	}

	return ports.Submission{
		ID: id,
		Request: execution.Request{
			Track:       execution.Track(e.Track),
			Source:      e.Source,
			ChallengeID: e.ChallengeID,
			TestSpec:    execution.TestSpec{Checks: checks},
		},
	}, nil
}

func encodeRunReport(report execution.RunReport) ([]byte, error) {
	payload, err := json.Marshal(makeResultEnvelope(report))
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return payload, nil
}

func makeResultEnvelope(report execution.RunReport) resultEnvelope {
	envelope := resultEnvelope{
		ID:          report.ID,
		ChallengeID: report.Request.ChallengeID,
		Track:       string(report.Request.Track),
		Timestamp:   time.Now(),
	}

	if report.Err != nil {
		envelope.ErrorKind = errorKindInfrastructure
		envelope.Error = report.Err.Error()
		return envelope
	}

	result := report.Result
	if result == nil {
		envelope.ErrorKind = errorKindInfrastructure
		envelope.Error = "run report carries neither result nor error"
		return envelope
	}

	success := result.Success
	score := result.Score
	maxScore := result.MaxScore
	durationMs := result.Duration.Milliseconds()

	envelope.Success = &success
	envelope.Score = &score
	envelope.MaxScore = &maxScore
	envelope.ExecutionTimeMs = &durationMs
	envelope.Metrics = result.Metrics

	if len(result.Checks) > 0 {
		envelope.Checks = make([]checkResultEnvelope, 0, len(result.Checks))
		for _, check := range result.Checks {
			envelope.Checks = append(envelope.Checks, checkResultEnvelope{
				Name:   check.Name,
				Passed: check.Passed,
				Points: check.Points,
				Error:  check.Error,
			})
		}
	}

	if len(result.Errors) > 0 {
		envelope.Errors = make([]errorDetailEnvelope, 0, len(result.Errors))
		for _, detail := range result.Errors {
			envelope.Errors = append(envelope.Errors, errorDetailEnvelope{
				Type:    detail.Type,
				Message: detail.Message,
			})
		}
	}

	return envelope
}
