package types

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// headerLeader and headerTrailer delimit the structured header from the
// free-form body in an artifact's on-disk text document.
const (
	headerLeader  = "---"
	headerTrailer = "---"
)

// header is the YAML shape persisted between the leader and trailer. Known
// context keys are typed fields; context.Extra is written under its own
// "extra" key and round-trips verbatim, while context keys outside it that
// Context does not declare are dropped on parse.
type header struct {
	Kind      Kind      `yaml:"kind"`
	Source    Source    `yaml:"source"`
	Timestamp time.Time `yaml:"timestamp"`
	Context   Context   `yaml:"context"`
}

// Serialize renders an artifact as the human-readable text document
// described below: a structured header followed by the free-form body.
func (a *Artifact) Serialize() ([]byte, error) {
	h := header{
		Kind:      a.Kind,
		Source:    a.Source,
		Timestamp: a.Timestamp.UTC(),
		Context:   a.Context,
	}
	hdrBytes, err := yaml.Marshal(&h)
	if err != nil {
		return nil, fmt.Errorf("serialize header: %w", err)
	}
	var b strings.Builder
	b.WriteString(headerLeader)
	b.WriteByte('\n')
	b.Write(hdrBytes)
	b.WriteString(headerTrailer)
	b.WriteByte('\n')
	b.WriteString(a.Content)
	return []byte(b.String()), nil
}

// ParseArtifact reconstructs an artifact from its on-disk text document. fid
// is supplied by the caller (it is derived from the artifact's path, not
// stored redundantly in the body).
func ParseArtifact(fid string, data []byte) (*Artifact, error) {
	text := string(data)
	if !strings.HasPrefix(text, headerLeader+"\n") {
		return nil, fmt.Errorf("parse artifact %s: missing header leader", fid)
	}
	rest := text[len(headerLeader)+1:]
	idx := strings.Index(rest, "\n"+headerTrailer+"\n")
	if idx < 0 {
		return nil, fmt.Errorf("parse artifact %s: missing header trailer", fid)
	}
	hdrText := rest[:idx]
	body := rest[idx+len("\n"+headerTrailer+"\n"):]

	var h header
	if err := yaml.Unmarshal([]byte(hdrText), &h); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", fid, err)
	}

	return &Artifact{
		FID:       fid,
		Kind:      h.Kind,
		Source:    h.Source,
		Content:   body,
		Timestamp: h.Timestamp,
		Context:   h.Context,
	}, nil
}
