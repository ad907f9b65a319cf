package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/tooldispatch/config"
	"github.com/petal-labs/tooldispatch/server"
)

// NewInvokeCmd creates the "invoke" subcommand. It dispatches one call through
// the same handler serve exposes, without opening a listener.
func NewInvokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoke <tool>",
		Short: "Invoke a tool in-process and print the response envelope",
		Args:  cobra.ExactArgs(1),
		RunE:  runInvoke,
	}
	cmd.Flags().String("tools-dir", config.DefaultToolsDir, "Directory of tool units")
	cmd.Flags().String("input", "", "Tool input as JSON")
	cmd.Flags().String("input-file", "", "Read tool input JSON from a file")
	return cmd
}

func runInvoke(cmd *cobra.Command, args []string) error {
	input, err := readInvokeInput(cmd)
	if err != nil {
		return err
	}

	registry, cfg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}

	body := map[string]any{"tool": args[0]}
	if input != nil {
		body["input"] = input
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return exitError(exitInputParse, "encoding request: %v", err)
	}

	// Local input is trusted, so the network body limit only applies as a floor.
	srv := server.NewServer(server.ServerConfig{
		Registry: registry,
		MaxBody:  max(cfg.MaxBodyBytes, int64(len(payload))),
		Logger:   newLogger(cmd, cfg).With("component", "server"),
	})
	req := httptest.NewRequestWithContext(cmd.Context(), http.MethodPost, "/tool", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	fmt.Fprint(cmd.OutOrStdout(), rec.Body.String())

	switch rec.Code {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		return exitError(exitValidation, "invoke %s: %s", args[0], responseError(rec.Body.Bytes()))
	case http.StatusNotFound:
		return exitError(exitNotFound, "invoke %s: %s", args[0], responseError(rec.Body.Bytes()))
	default:
		return exitError(exitRuntime, "invoke %s: %s", args[0], responseError(rec.Body.Bytes()))
	}
}

// readInvokeInput returns the decoded --input or --input-file value, or nil
// when neither is set.
func readInvokeInput(cmd *cobra.Command) (json.RawMessage, error) {
	raw, _ := cmd.Flags().GetString("input")
	inputFile, _ := cmd.Flags().GetString("input-file")
	if raw != "" && inputFile != "" {
		return nil, exitError(exitValidation, "--input and --input-file are mutually exclusive")
	}
	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, exitError(exitInputParse, "reading input file: %v", err)
		}
		raw = string(data)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, exitError(exitInputParse, "input is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func responseError(body []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == "" {
		return strings.TrimSpace(string(body))
	}
	return envelope.Error
}
