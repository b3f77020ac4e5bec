// Package scriptgen turns cart details into a short spoken call script using
// a hosted text-generation model. The pipeline treats generation as opaque:
// prompt in, text out.
package scriptgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cart-dialer/internal/calls"
)

// Generator produces a call script for a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerationError is the per-record failure of script generation. The record
// is logged as failed and never dispatched.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("scriptgen: %s: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PromptInput is what the prompt is built from.
type PromptInput struct {
	CustomerName string
	Items        string
	Total        string
	Reason       string
	Language     string
	DiscountCode string
}

// InputFrom pulls prompt fields out of a built request.
func InputFrom(req calls.CallRequest, discountCode string) PromptInput {
	return PromptInput{
		CustomerName: req.Variables[calls.VarCustomerName],
		Items:        req.Variables[calls.VarItems],
		Total:        req.Variables[calls.VarTotal],
		Reason:       req.Variables[calls.VarCartReason],
		Language:     req.Variables[calls.VarLanguage],
		DiscountCode: discountCode,
	}
}

// BuildPrompt renders the script prompt.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("Create a polite 20-second call script.\n\n")
	fmt.Fprintf(&b, "Customer: %s\n", in.CustomerName)
	fmt.Fprintf(&b, "Items: %s\n", in.Items)
	fmt.Fprintf(&b, "Cart Value: %s\n", in.Total)
	if in.Reason != "" && in.Reason != "Unknown" {
		fmt.Fprintf(&b, "Reason the cart was left: %s\n", in.Reason)
	}
	if in.DiscountCode != "" {
		fmt.Fprintf(&b, "Discount Code: %s\n", in.DiscountCode)
	}
	if in.Language != "" && !strings.EqualFold(in.Language, "en") {
		fmt.Fprintf(&b, "Language: write the script in %s\n", in.Language)
	}
	b.WriteString("\nScript should be friendly and simple. Return only the words to be spoken.")
	return b.String()
}

// Apply generates a script for req and sets it as the first message.
func Apply(ctx context.Context, g Generator, req calls.CallRequest, discountCode string) (calls.CallRequest, error) {
	text, err := g.Generate(ctx, BuildPrompt(InputFrom(req, discountCode)))
	if err != nil {
		return req, err
	}
	req.FirstMessage = text
	return req, nil
}

func wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Provider: provider, Err: err}
}
