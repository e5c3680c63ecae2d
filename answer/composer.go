// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/citation"
)

var (
	// ErrGeneratorRequired is returned when creating a Composer without a generator.
	ErrGeneratorRequired = errors.New("generator is required")

	// ErrNoContext is returned when there are no passages to answer from.
	ErrNoContext = errors.New("no relevant passages found")

	// ErrEmptyQuestion is returned when the question is blank.
	ErrEmptyQuestion = errors.New("question cannot be empty")
)

const promptTemplate = `Answer the question using only the passages below, taken from the collected works of The Mother.
If the passages do not contain the answer, say that you do not know. Do not use outside knowledge.
Cite the source of every statement as [filename, page label].

Passages:

%s
Question: %s
Answer:`

// Answer is a generated answer and the citations it was grounded on.
type Answer struct {
	Question  string
	Text      string
	Citations *citation.Citations
}

// Composer turns grouped citations into a grounded prompt and asks a
// generator to answer it.
type Composer struct {
	generator ai.Generator
	logger    *slog.Logger
}

// Option configures a Composer.
type Option func(*Composer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "answer")
		return nil
	}
}

// NewComposer creates a Composer that generates with generator.
func NewComposer(generator ai.Generator, opts ...Option) (*Composer, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	c := &Composer{
		generator: generator,
		logger:    slog.Default().With("component", "answer"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Compose answers question from citations.
// It returns ErrNoContext without calling the generator if citations is empty.
func (c *Composer) Compose(ctx context.Context, question string, citations *citation.Citations) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if citations == nil || citations.Empty() {
		return nil, ErrNoContext
	}

	prompt := BuildPrompt(question, citations)
	c.logger.Debug("generating answer", "passages", citations.Results(), "prompt_length", len(prompt))

	text, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		c.logger.Error("error generating answer", "err", err)
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	return &Answer{
		Question:  question,
		Text:      strings.TrimSpace(text),
		Citations: citations,
	}, nil
}

// BuildPrompt renders the grounded prompt for question.
// The primary passage comes first, followed by each group under its
// filename and page label.
func BuildPrompt(question string, citations *citation.Citations) string {
	var sb strings.Builder
	if p := citations.Primary; p != nil {
		fmt.Fprintf(&sb, "[%s, %s]\n%s\n\n", p.Filename, citation.PageLabel([]int{p.PageNumber}), p.Text)
	}
	for _, g := range citations.Groups {
		fmt.Fprintf(&sb, "[%s, %s]\n", g.Filename, g.Label)
		for _, text := range g.Texts {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return fmt.Sprintf(promptTemplate, sb.String(), strings.TrimSpace(question))
}
