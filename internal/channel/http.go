package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// PostJSON posts body as JSON and returns the status and a short body
// snippet. Transport failures come back as *TransportError.
func PostJSON(ctx context.Context, client *http.Client, name, url string, body any, header http.Header) (int, string, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, "", fmt.Errorf("%s: marshal: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return 0, "", NewConfigError(name, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", NewTransportError(name, KindNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return resp.StatusCode, strings.TrimSpace(string(snippet)), nil
}
