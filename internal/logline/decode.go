package logline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// record is the on-disk shape of one LAVA log entry:
//
//	- {dt: "2024-05-02T10:01:02.345678", lvl: target, msg: "..."}
type record struct {
	Dt  string  `yaml:"dt"`
	Lvl string  `yaml:"lvl"`
	Msg Message `yaml:"msg"`
}

// timeLayouts are tried in order when parsing the dt field.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalYAML maps scalar, sequence and mapping msg nodes onto the three
// Message variants.
func (m *Message) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.AliasNode:
		return m.UnmarshalYAML(value.Alias)
	case yaml.ScalarNode:
		*m = Text("")
		if value.Tag != "!!null" {
			m.Text = value.Value
		}
		return nil
	case yaml.SequenceNode:
		var lines []string
		if err := value.Decode(&lines); err != nil {
			return fmt.Errorf("decode msg sequence: %w", err)
		}
		*m = List(lines...)
		return nil
	case yaml.MappingNode:
		fields := map[string]any{}
		if err := value.Decode(&fields); err != nil {
			return fmt.Errorf("decode msg mapping: %w", err)
		}
		*m = Message{Kind: KindMapping, Fields: fields}
		return nil
	default:
		return fmt.Errorf("unsupported msg node kind %d", value.Kind)
	}
}

func (r record) toLogLine() (LogLine, error) {
	if r.Lvl == "" {
		return LogLine{}, errors.New("record has no lvl")
	}

	line := LogLine{Level: Level(r.Lvl), Message: r.Msg}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, r.Dt); err == nil {
			line.Time = t
			break
		}
	}
	return line, nil
}

// UnmarshalYAML decodes a LogLine from the record form
// {dt: ..., lvl: ..., msg: ...}.
func (l *LogLine) UnmarshalYAML(value *yaml.Node) error {
	var rec record
	if err := value.Decode(&rec); err != nil {
		return err
	}

	line, err := rec.toLogLine()
	if err != nil {
		return err
	}
	*l = line
	return nil
}

// Decode reads a recorded LAVA log (a YAML sequence of records, possibly
// split in several documents) and returns its lines in order.
func Decode(r io.Reader) ([]LogLine, error) {
	var lines []LogLine

	dec := yaml.NewDecoder(r)
	for {
		var records []record
		err := dec.Decode(&records)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse log: %w", err)
		}

		for i, rec := range records {
			line, err := rec.toLogLine()
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", len(lines)+i+1, err)
			}
			lines = append(lines, line)
		}
	}

	return lines, nil
}

// ParseRecord decodes one physical line of a LAVA log. Both the sequence item
// form ("- {...}") and a bare mapping (including JSON) are accepted.
//
// ok is false for lines that carry no record: blanks and document markers.
func ParseRecord(raw []byte) (line LogLine, ok bool, err error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("---")) || bytes.Equal(trimmed, []byte("...")) {
		return LogLine{}, false, nil
	}

	var rec record
	if trimmed[0] == '-' {
		var records []record
		if err := yaml.Unmarshal(trimmed, &records); err != nil {
			return LogLine{}, false, fmt.Errorf("failed to parse record: %w", err)
		}
		if len(records) != 1 {
			return LogLine{}, false, fmt.Errorf("expected one record per line, got %d", len(records))
		}
		rec = records[0]
	} else if err := yaml.Unmarshal(trimmed, &rec); err != nil {
		return LogLine{}, false, fmt.Errorf("failed to parse record: %w", err)
	}

	line, err = rec.toLogLine()
	if err != nil {
		return LogLine{}, false, err
	}
	return line, true, nil
}
