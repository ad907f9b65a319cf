package tool

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mitchellh/mapstructure"
)

var builtinHandlers = map[string]Handler{
	"add":                HandlerFunc(addTool),
	"code_review_prompt": HandlerFunc(codeReviewPromptTool),
	"echo":               HandlerFunc(echoTool),
	"health":             HandlerFunc(healthTool),
	"normalize_name":     HandlerFunc(normalizeNameTool),
}

// LookupBuiltin returns a native builtin handler by name.
func LookupBuiltin(name string) (Handler, bool) {
	h, ok := builtinHandlers[name]
	return h, ok
}

// BuiltinNames returns the builtin handler names in deterministic order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinHandlers))
	for name := range builtinHandlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// decodeInput decodes a JSON-like input value into a typed struct. Numbers
// arriving as json.Number or strings are converted weakly.
func decodeInput(input any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func echoTool(_ context.Context, input any) (any, error) {
	return input, nil
}

func healthTool(context.Context, any) (any, error) {
	return "ok", nil
}

type addInput struct {
	A *int64 `json:"a"`
	B *int64 `json:"b"`
}

func addTool(_ context.Context, input any) (any, error) {
	var in addInput
	if err := decodeInput(input, &in); err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	if in.A == nil || in.B == nil {
		return nil, fmt.Errorf("add: %w: a and b are required", ErrInvalidInput)
	}
	a, b := *in.A, *in.B
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return nil, fmt.Errorf("add: %w: sum of %d and %d overflows int64", ErrInvalidInput, a, b)
	}
	return map[string]any{"sum": sum}, nil
}

type normalizeNameInput struct {
	Name string `json:"name"`
}

func normalizeNameTool(_ context.Context, input any) (any, error) {
	var in normalizeNameInput
	if err := decodeInput(input, &in); err != nil {
		return nil, fmt.Errorf("normalize_name: %w", err)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("normalize_name: %w: name is required", ErrInvalidInput)
	}
	words := strings.Fields(in.Name)
	for i, word := range words {
		words[i] = titleWord(word)
	}
	return map[string]any{"normalized": strings.Join(words, " ")}, nil
}

func titleWord(word string) string {
	lower := strings.ToLower(word)
	first, size := utf8.DecodeRuneInString(lower)
	if first == utf8.RuneError {
		return lower
	}
	return string(unicode.ToUpper(first)) + lower[size:]
}

type codeReviewPromptInput struct {
	Code string `json:"code"`
}

func codeReviewPromptTool(_ context.Context, input any) (any, error) {
	var in codeReviewPromptInput
	if err := decodeInput(input, &in); err != nil {
		return nil, fmt.Errorf("code_review_prompt: %w", err)
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, fmt.Errorf("code_review_prompt: %w: code is required", ErrInvalidInput)
	}
	return "Review the code for correctness, security, and maintainability.\n\nCODE:\n" + in.Code + "\n", nil
}
