package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
	"mimitomo/internal/usecase"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, log zerolog.Logger, statusCode int, message string, detail string) {
	writeJSON(w, log, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
		Detail:  detail,
	})
}

func writeBadRequest(w http.ResponseWriter, log zerolog.Logger, detail string) {
	writeError(w, log, http.StatusBadRequest, "入力内容を確認してください。", detail)
}

// writeServiceError maps usecase errors onto status codes. data, when set,
// carries a partial result alongside the error.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error, data any) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, log, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    status,
		Message: message,
		Detail:  err.Error(),
		Data:    data,
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalid):
		return http.StatusBadRequest, "入力内容を確認してください。"
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound, "見つかりませんでした。"
	case errors.Is(err, usecase.ErrUnknownScreen):
		return http.StatusNotFound, "画面が見つかりませんでした。"
	case errors.Is(err, usecase.ErrScreenBusy):
		return http.StatusConflict, "処理中です。しばらくお待ちください。"
	case errors.Is(err, usecase.ErrScreenNotActive),
		errors.Is(err, usecase.ErrNotListening),
		errors.Is(err, usecase.ErrSessionClosed):
		return http.StatusConflict, "この画面は表示されていません。"
	case errors.Is(err, usecase.ErrEngineUnavailable):
		return http.StatusServiceUnavailable, "音声認識を利用できません。"
	case errors.Is(err, usecase.ErrShellClosed):
		return http.StatusServiceUnavailable, "終了処理中です。"
	case errors.Is(err, usecase.ErrStartFailed):
		return http.StatusInternalServerError, "マイクの開始に失敗しました。"
	}
	var remote *domain.RemoteError
	if errors.As(err, &remote) {
		return http.StatusBadGateway, "エラーが発生しました。もう一度お試しください。"
	}
	return http.StatusInternalServerError, "エラーが発生しました。"
}
