package flow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"studyCafeCRM/domain"
)

var ErrInvalidConfig = errors.New("invalid flow config")

var validate = validator.New()

// Definition is the operator-editable part of a flow, already decoded into
// the variant its flow type calls for.
type Definition struct {
	BranchID uint
	Name     string
	FlowType domain.FlowType
	Trigger  domain.TriggerConfig
	Filter   domain.FilterConfig
	Point    *domain.PointConfig
	Message  *domain.MessageConfig
}

// RawDefinition is the shape handlers receive. Configs stay raw until the
// flow type is known.
type RawDefinition struct {
	BranchID      uint            `json:"branchId"`
	Name          string          `json:"name"`
	FlowType      domain.FlowType `json:"flowType"`
	TriggerConfig json.RawMessage `json:"triggerConfig"`
	FilterConfig  json.RawMessage `json:"filterConfig"`
	PointConfig   json.RawMessage `json:"pointConfig"`
	MessageConfig json.RawMessage `json:"messageConfig"`
}

// triggerInput only admits the fields an operator may set; execution
// bookkeeping in TriggerConfig is written by the callback path.
type triggerInput struct {
	Schedule string `json:"schedule" validate:"required"`
}

// ParseDefinition decodes and validates raw configs. Any shape that does not
// match the flow type is rejected with ErrInvalidConfig.
func ParseDefinition(raw RawDefinition) (Definition, error) {
	def := Definition{
		BranchID: raw.BranchID,
		Name:     strings.TrimSpace(raw.Name),
		FlowType: raw.FlowType,
	}

	if def.Name == "" {
		return Definition{}, invalid("name is required")
	}
	if def.BranchID == 0 {
		return Definition{}, invalid("branchId is required")
	}

	var trig triggerInput
	if err := decodeStrict(raw.TriggerConfig, &trig); err != nil {
		return Definition{}, invalid("triggerConfig: %v", err)
	}
	if err := validate.Struct(trig); err != nil {
		return Definition{}, invalid("triggerConfig: %v", err)
	}
	if _, err := ParseSchedule(trig.Schedule); err != nil {
		return Definition{}, invalid("triggerConfig.schedule: %v", err)
	}
	def.Trigger = domain.TriggerConfig{Schedule: strings.TrimSpace(trig.Schedule)}

	if !isEmpty(raw.FilterConfig) {
		if err := decodeStrict(raw.FilterConfig, &def.Filter); err != nil {
			return Definition{}, invalid("filterConfig: %v", err)
		}
	}
	if err := ValidateFilter(def.Filter); err != nil {
		return Definition{}, err
	}

	switch raw.FlowType {
	case domain.FlowTypePoint:
		if !isEmpty(raw.MessageConfig) {
			return Definition{}, invalid("messageConfig is not allowed on a point flow")
		}
		var pc domain.PointConfig
		if err := decodeStrict(raw.PointConfig, &pc); err != nil {
			return Definition{}, invalid("pointConfig: %v", err)
		}
		if err := validate.Struct(pc); err != nil {
			return Definition{}, invalid("pointConfig: %v", err)
		}
		def.Point = &pc

	case domain.FlowTypeMessage:
		if !isEmpty(raw.PointConfig) {
			return Definition{}, invalid("pointConfig is not allowed on a message flow")
		}
		var mc domain.MessageConfig
		if err := decodeStrict(raw.MessageConfig, &mc); err != nil {
			return Definition{}, invalid("messageConfig: %v", err)
		}
		if err := validate.Struct(mc); err != nil {
			return Definition{}, invalid("messageConfig: %v", err)
		}
		def.Message = &mc

	default:
		return Definition{}, invalid("unknown flowType %q", raw.FlowType)
	}

	return def, nil
}

func ValidateFilter(f domain.FilterConfig) error {
	if err := validate.Struct(f); err != nil {
		return invalid("filterConfig: %v", err)
	}
	if f.FirstVisitFrom != nil && f.FirstVisitTo != nil && f.FirstVisitFrom.After(*f.FirstVisitTo) {
		return invalid("filterConfig: firstVisitFrom is after firstVisitTo")
	}
	return nil
}

// ParseSchedule accepts standard 5-field cron expressions and descriptors
// such as @daily. A leading CRON_TZ= overrides the service timezone.
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("schedule is empty")
	}
	return cron.ParseStandard(expr)
}

// NextRun is the first scheduled instant strictly after from, evaluated in
// loc unless the expression pins its own zone.
func NextRun(expr string, from time.Time, loc *time.Location) (time.Time, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	if loc != nil {
		from = from.In(loc)
	}
	return sched.Next(from), nil
}

func decodeStrict(raw json.RawMessage, v any) error {
	if isEmpty(raw) {
		return errors.New("is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func isEmpty(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
