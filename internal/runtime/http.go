package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPSession talks to a validation runtime exposed over HTTP. Each
// operation posts one action request and decodes the runtime's uniform
// response envelope.
type HTTPSession struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSession connects to a runtime session endpoint. The session
// process itself is managed elsewhere (or pre-existing and borrowed).
func NewHTTPSession(endpoint string) *HTTPSession {
	return &HTTPSession{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

type actionRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

type actionResponse struct {
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	LastAction   string         `json:"lastAction,omitempty"`
	ActionReturn map[string]any `json:"actionReturn,omitempty"`
}

func (s *HTTPSession) do(ctx context.Context, req actionRequest) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal %s request: %w", req.Action, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/action", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build %s request: %w", req.Action, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("session %s: %w", req.Action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("session %s: endpoint returned %s", req.Action, resp.Status)
	}

	var ar actionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return Result{}, fmt.Errorf("decode %s response: %w", req.Action, err)
	}

	return Result{
		Success:      ar.Success,
		ErrorMessage: ar.ErrorMessage,
		LastAction:   ar.LastAction,
		Metadata:     ar.ActionReturn,
	}, nil
}

// Reset implements Session.
func (s *HTTPSession) Reset(ctx context.Context) error {
	res, err := s.do(ctx, actionRequest{Action: "Reset", Params: map[string]any{"scene": "Procedural"}})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("session reset failed: %s", res.ErrorMessage)
	}

	// The runtime keeps a bounded LRU of loaded assets; stale entries
	// must not survive into the next asset's load.
	res, err = s.do(ctx, actionRequest{Action: "DeleteLRUFromProceduralCache", Params: map[string]any{"assetLimit": 0}})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("session cache clear failed: %s", res.ErrorMessage)
	}
	return nil
}

// CreateAsset implements Session.
func (s *HTTPSession) CreateAsset(ctx context.Context, assetDir, assetID, encoding string) (Result, error) {
	return s.do(ctx, actionRequest{
		Action: "CreateRuntimeAsset",
		Params: map[string]any{
			"id":        assetID,
			"dir":       assetDir,
			"extension": encoding,
		},
	})
}

// RenderViews implements Session.
func (s *HTTPSession) RenderViews(ctx context.Context, req RenderRequest) (Result, error) {
	rotations := make([]map[string]any, 0, len(req.Rotations))
	for _, r := range req.Rotations {
		rotations = append(rotations, map[string]any{
			"x": r.X, "y": r.Y, "z": r.Z, "degrees": r.Degrees,
		})
	}
	return s.do(ctx, actionRequest{
		Action: "RenderAssetViews",
		Params: map[string]any{
			"id":          req.AssetID,
			"outputDir":   req.OutputDir,
			"rotations":   rotations,
			"skyboxColor": []int{int(req.SkyboxColor[0]), int(req.SkyboxColor[1]), int(req.SkyboxColor[2])},
			"width":       req.Width,
			"height":      req.Height,
		},
	})
}

// Close implements Session. The HTTP client holds no server-side
// resources; stopping a runtime the pipeline owns is requested
// explicitly.
func (s *HTTPSession) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := s.do(ctx, actionRequest{Action: "Stop"})
	return err
}
