// Package script implements YAML interaction scripts, run against a
// session by either execution adapter.
//
// A script is a list of steps, each performing exactly one action:
//
//	timeout: 5s
//	steps:
//	  - expect: "login: "
//	  - send_line: admin
//	  - any:
//	      - regex: '\$ $'
//	      - expect: "denied"
//	    timeout: 2s
//	  - control: ctrl+d
//	  - eof: true
//	  - wait: true
//	    exit_code: 0
package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/joeycumines/go-expect"
	"gopkg.in/yaml.v3"
)

type (
	// Script is a parsed interaction script.
	Script struct {
		Steps []Step `yaml:"steps"`
		// Timeout applies to expect steps without their own.
		Timeout time.Duration `yaml:"timeout"`
	}

	// Step is a single action. Exactly one of the action fields must be
	// set, see [Step.Validate].
	Step struct {
		Send     *string `yaml:"send"`
		SendLine *string `yaml:"send_line"`
		Control  string  `yaml:"control"`

		Expect *string `yaml:"expect"`
		Regex  string  `yaml:"regex"`
		Bytes  *int    `yaml:"bytes"`
		EOF    bool    `yaml:"eof"`
		Any    []Step  `yaml:"any"`

		Wait     bool `yaml:"wait"`
		ExitCode *int `yaml:"exit_code"`

		Timeout time.Duration `yaml:"timeout"`
	}
)

// Load parses a script, rejecting unknown fields, and validates it.
func Load(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("script: empty document")
		}
		return nil, fmt.Errorf("script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile is like [Load], reading from a file.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Validate checks every step has exactly one action, and that patterns and
// control codes are valid.
func (x *Script) Validate() error {
	if x.Timeout < 0 {
		return errors.New("script: negative timeout")
	}
	for i := range x.Steps {
		if err := x.Steps[i].Validate(); err != nil {
			return fmt.Errorf("script: step %d: %w", i+1, err)
		}
	}
	return nil
}

// Validate checks the step has exactly one action.
func (x *Step) Validate() error {
	var actions []string
	for name, set := range map[string]bool{
		"send":      x.Send != nil,
		"send_line": x.SendLine != nil,
		"control":   x.Control != "",
		"expect":    x.Expect != nil,
		"regex":     x.Regex != "",
		"bytes":     x.Bytes != nil,
		"eof":       x.EOF,
		"any":       x.Any != nil,
		"wait":      x.Wait,
	} {
		if set {
			actions = append(actions, name)
		}
	}
	slices.Sort(actions)
	switch len(actions) {
	case 1:
	case 0:
		return errors.New("no action")
	default:
		return fmt.Errorf("more than one action: %v", actions)
	}
	if x.ExitCode != nil && !x.Wait {
		return errors.New("exit_code requires wait")
	}
	if x.Timeout < 0 {
		return errors.New("negative timeout")
	}
	if x.Control != "" {
		if _, err := expect.ParseControl(x.Control); err != nil {
			return err
		}
	}
	if x.Any != nil {
		if len(x.Any) == 0 {
			return errors.New("any: no patterns")
		}
		for i := range x.Any {
			if err := x.Any[i].Validate(); err != nil {
				return fmt.Errorf("any %d: %w", i+1, err)
			}
			if !x.Any[i].isPattern() || x.Any[i].Any != nil {
				return fmt.Errorf("any %d: not a pattern", i+1)
			}
		}
		return nil
	}
	if x.isPattern() {
		_, err := x.pattern()
		return err
	}
	return nil
}

func (x *Step) isPattern() bool {
	return x.Expect != nil || x.Regex != "" || x.Bytes != nil || x.EOF || x.Any != nil
}

func (x *Step) pattern() (expect.Pattern, error) {
	switch {
	case x.Expect != nil:
		return expect.Literal(*x.Expect), nil
	case x.Regex != "":
		return expect.NewRegex(x.Regex)
	case x.Bytes != nil:
		if *x.Bytes < 0 {
			return nil, errors.New("bytes: negative count")
		}
		return expect.ByteCount(*x.Bytes), nil
	case x.EOF:
		return expect.EOF{}, nil
	default:
		return nil, errors.New("not a pattern")
	}
}

// patterns returns the patterns of an expect step, in priority order.
func (x *Step) patterns() ([]expect.Pattern, error) {
	if x.Any == nil {
		p, err := x.pattern()
		if err != nil {
			return nil, err
		}
		return []expect.Pattern{p}, nil
	}
	patterns := make([]expect.Pattern, 0, len(x.Any))
	for i := range x.Any {
		p, err := x.Any[i].pattern()
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// String describes the step, for logs and errors.
func (x *Step) String() string {
	switch {
	case x.Send != nil:
		return "send " + strconv.Quote(*x.Send)
	case x.SendLine != nil:
		return "send_line " + strconv.Quote(*x.SendLine)
	case x.Control != "":
		return "control " + x.Control
	case x.Wait:
		return "wait"
	case x.isPattern():
		patterns, err := x.patterns()
		if err != nil {
			return "invalid pattern"
		}
		return fmt.Sprintf("expect %v", patterns)
	default:
		return "empty"
	}
}
