package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/domain"
)

// Selection defaults used when the caller passes non-positive limits.
const (
	DefaultMaxSkills = 8
	DefaultMaxBytes  = 80000
)

// ProcessRouter ranks skills by running an external command.
// The command receives: <query> --k <n> --max-bytes <b> --json
type ProcessRouter struct {
	command []string
	dir     string
}

// NewProcessRouter parses a whitespace separated command line such as
// "npx tsx tools/skills-indexer/src/02-router.ts". dir sets the working directory.
func NewProcessRouter(command, dir string) *ProcessRouter {
	return &ProcessRouter{command: strings.Fields(command), dir: dir}
}

// Select runs the router and decodes its SkillSelectionResult.
func (r *ProcessRouter) Select(ctx context.Context, query string, maxCount, maxBytes int) (*domain.SkillSelectionResult, error) {
	if len(r.command) == 0 {
		return nil, &RouterError{Kind: KindExec, Op: "select", Err: errors.New("router command not configured")}
	}
	if maxCount <= 0 {
		maxCount = DefaultMaxSkills
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	args := append(append([]string{}, r.command[1:]...),
		query,
		"--k", strconv.Itoa(maxCount),
		"--max-bytes", strconv.Itoa(maxBytes),
		"--json",
	)

	cmd := exec.CommandContext(ctx, r.command[0], args...)
	cmd.Dir = r.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error().Err(err).Str("stderr", strings.TrimSpace(stderr.String())).Msg("skills router failed")
		return nil, &RouterError{Kind: KindExec, Op: "select", Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))}
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, &RouterError{Kind: KindOutput, Op: "select", Err: errors.New("router produced no output")}
	}

	var result domain.SkillSelectionResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, &RouterError{Kind: KindMalformed, Op: "select", Err: fmt.Errorf("failed to parse router output: %w", err)}
	}
	if err := validateResult(&result, maxCount, maxBytes); err != nil {
		return nil, &RouterError{Kind: KindMalformed, Op: "select", Err: err}
	}

	log.Info().
		Str("persona", result.Persona).
		Int("skills", len(result.Skills)).
		Int("total_bytes", result.TotalBytes).
		Msg("skills selected")

	return &result, nil
}

// validateResult checks the router output against its own limits and against
// the budget that was requested.
func validateResult(r *domain.SkillSelectionResult, maxCount, maxBytes int) error {
	if r.Skills == nil {
		r.Skills = []domain.SkillCandidate{}
	}
	l := r.Limits
	if l.ActualSkills > l.MaxSkills || l.ActualBytes > l.MaxBytes {
		return fmt.Errorf("limits exceeded: %d/%d skills, %d/%d bytes",
			l.ActualSkills, l.MaxSkills, l.ActualBytes, l.MaxBytes)
	}
	if l.MaxSkills > maxCount || l.MaxBytes > maxBytes {
		return fmt.Errorf("router limits %d skills, %d bytes exceed requested %d skills, %d bytes",
			l.MaxSkills, l.MaxBytes, maxCount, maxBytes)
	}
	if len(r.Skills) > maxCount || r.TotalBytes > maxBytes {
		return fmt.Errorf("selection of %d skills, %d bytes exceeds requested %d skills, %d bytes",
			len(r.Skills), r.TotalBytes, maxCount, maxBytes)
	}
	for _, s := range r.Skills {
		if s.ID == "" {
			return errors.New("skill candidate without id")
		}
	}
	return nil
}
