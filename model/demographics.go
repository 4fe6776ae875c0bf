package model

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed demographics.yaml
var demographicsYAML []byte

type Option struct {
	Code  string `yaml:"code" json:"code"`
	Label string `yaml:"label" json:"label"`
}

// DemographicOptions is the static mapping between the labels the kiosk
// shows and the codes the backend stores.
type DemographicOptions struct {
	Gender []Option `yaml:"gender" json:"gender"`
	Age    []Option `yaml:"age" json:"age"`
}

var Options = mustLoadOptions(demographicsYAML)

func mustLoadOptions(raw []byte) DemographicOptions {
	opts, err := LoadOptions(raw)
	if err != nil {
		panic(err)
	}
	return opts
}

func LoadOptions(raw []byte) (opts DemographicOptions, err error) {
	if err = yaml.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("parse demographics: %w", err)
	}
	if len(opts.Gender) == 0 || len(opts.Age) == 0 {
		return opts, fmt.Errorf("parse demographics: gender and age options are required")
	}
	return opts, nil
}

// GenderCode resolves a label or code to the backend code. An empty value
// resolves to "" with ok=true.
func (o DemographicOptions) GenderCode(value string) (code string, ok bool) {
	return lookupCode(o.Gender, value)
}

func (o DemographicOptions) AgeCode(value string) (code string, ok bool) {
	return lookupCode(o.Age, value)
}

func (o DemographicOptions) GenderLabel(code string) string {
	return lookupLabel(o.Gender, code)
}

func (o DemographicOptions) AgeLabel(code string) string {
	return lookupLabel(o.Age, code)
}

// Validate checks that every demographic value is a known label or code.
func (o DemographicOptions) Validate(d Demographics) error {
	if _, ok := o.GenderCode(d.Gender); !ok {
		return fmt.Errorf("unknown gender %q", d.Gender)
	}
	if _, ok := o.AgeCode(d.Age); !ok {
		return fmt.Errorf("unknown age range %q", d.Age)
	}
	return nil
}

func lookupCode(options []Option, value string) (string, bool) {
	value = canonical(value)
	if value == "" {
		return "", true
	}
	for _, opt := range options {
		if canonical(opt.Code) == value || canonical(opt.Label) == value {
			return opt.Code, true
		}
	}
	return "", false
}

func lookupLabel(options []Option, code string) string {
	code = canonical(code)
	for _, opt := range options {
		if canonical(opt.Code) == code {
			return opt.Label
		}
	}
	return ""
}

// canonical folds case and Unicode composition, so "Não" typed with a
// combining tilde matches the table.
func canonical(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}
