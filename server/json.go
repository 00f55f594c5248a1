package server

import (
	"encoding/json"
	"net/http"

	"preview_engine/render"
	"preview_engine/session"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// previewJSON is the wire form of one declared preview and its state.
type previewJSON struct {
	KeyID      string `json:"key_id"`
	Name       string `json:"name"`
	FunctionID string `json:"function_id"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Group      string `json:"group,omitempty"`
	Param      string `json:"param,omitempty"`

	Status string `json:"status"`
	// Pending: requested size, negative when auto-sized
	WidthDp  *int `json:"width_dp,omitempty"`
	HeightDp *int `json:"height_dp,omitempty"`
	// Success
	Size     *render.SizeDp `json:"size_dp,omitempty"`
	WidthPx  int            `json:"width_px,omitempty"`
	HeightPx int            `json:"height_px,omitempty"`
	ImageURL string         `json:"image_url,omitempty"`
	// Error
	Message string `json:"message,omitempty"`
}

func newPreviewJSON(sessionID string, p session.Preview) previewJSON {
	out := previewJSON{
		KeyID:      p.Key.ID(),
		Name:       p.Declaration.Name,
		FunctionID: p.Declaration.FunctionID,
		File:       p.Declaration.File,
		Line:       p.Declaration.Line,
		Group:      p.Declaration.Spec.Group,
		Status:     p.State.Status.String(),
	}
	if p.Declaration.Param.IsSet() {
		out.Param = p.Declaration.Param.String()
	}

	switch p.State.Status {
	case render.StatusPending:
		w, h := p.State.WidthDp, p.State.HeightDp
		out.WidthDp, out.HeightDp = &w, &h
	case render.StatusSuccess:
		size := p.State.Size
		out.Size = &size
		if img := p.State.Image; img != nil {
			out.WidthPx, out.HeightPx = img.Bounds().Dx(), img.Bounds().Dy()
		}
		out.ImageURL = "/api/sessions/" + sessionID + "/previews/" + out.KeyID + ".png"
	case render.StatusError:
		out.Message = p.State.Message
	}
	return out
}

func newPreviewsJSON(sessionID string, previews []session.Preview) []previewJSON {
	out := make([]previewJSON, len(previews))
	for i, p := range previews {
		out[i] = newPreviewJSON(sessionID, p)
	}
	return out
}
