package httpapi

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"mimitomo/internal/observe"
	"mimitomo/internal/ports"
	"mimitomo/internal/usecase"
)

const defaultMaxUploadBytes = 10 << 20

// Services is everything the HTTP API serves.
type Services struct {
	Profiles     *usecase.Profiles
	Reminders    *usecase.Reminders
	Memories     *usecase.Memories
	Conversation *usecase.Conversation
	Shell        *usecase.Shell
	Voice        *usecase.Voice
	Hub          *Hub

	// Events, when set, is told about records changed through the API so
	// other subscribers refresh.
	Events ports.EventSink
	// Metrics, when set, instruments every route.
	Metrics  *observe.Metrics
	Gatherer prometheus.Gatherer

	// MediaDir is served under MediaPrefix when both are set.
	MediaDir       string
	MediaPrefix    string
	MaxUploadBytes int64

	Log zerolog.Logger
}

// NewRouter registers every route.
func NewRouter(s Services) *mux.Router {
	if s.MaxUploadBytes <= 0 {
		s.MaxUploadBytes = defaultMaxUploadBytes
	}
	h := &handlers{Services: s}

	r := mux.NewRouter()
	r.Use(recoverer(s.Log))
	if s.Metrics != nil {
		r.Use(observe.Middleware(s.Metrics, s.Log))
	}

	r.HandleFunc("/api/health", h.health).Methods(http.MethodGet)
	if s.Hub != nil {
		r.Handle("/api/events", s.Hub).Methods(http.MethodGet)
	}

	r.HandleFunc("/api/users/{userId}", h.getUser).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userId}", h.updateUser).Methods(http.MethodPut)
	r.HandleFunc("/api/users/{userId}/profile-items", h.createProfileItem).Methods(http.MethodPost)
	r.HandleFunc("/api/users/{userId}/profile-items/{itemId}", h.updateProfileItem).Methods(http.MethodPut)
	r.HandleFunc("/api/users/{userId}/profile-items/{itemId}", h.deleteProfileItem).Methods(http.MethodDelete)

	r.HandleFunc("/api/users/{userId}/reminders", h.listReminders).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userId}/reminders", h.createReminder).Methods(http.MethodPost)
	r.HandleFunc("/api/users/{userId}/reminders/{reminderId}/toggle", h.toggleReminder).Methods(http.MethodPatch)
	r.HandleFunc("/api/users/{userId}/reminders/{reminderId}", h.deleteReminder).Methods(http.MethodDelete)

	r.HandleFunc("/api/users/{userId}/memories", h.listMemories).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userId}/memories", h.uploadMemory).Methods(http.MethodPost)
	r.HandleFunc("/api/users/{userId}/memories/{memoryId}", h.updateMemory).Methods(http.MethodPatch)
	r.HandleFunc("/api/users/{userId}/memories/{memoryId}", h.deleteMemory).Methods(http.MethodDelete)

	r.HandleFunc("/api/users/{userId}/messages", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userId}/messages", h.sendMessage).Methods(http.MethodPost)

	r.HandleFunc("/api/screens/{screen}", h.screenStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/screens/{screen}/{action:enter|leave|start|stop}", h.screenAction).Methods(http.MethodPost)

	r.HandleFunc("/api/speaker", h.getSpeaker).Methods(http.MethodGet)
	r.HandleFunc("/api/speaker", h.setSpeaker).Methods(http.MethodPut)

	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if s.MediaDir != "" && strings.HasPrefix(s.MediaPrefix, "/") {
		prefix := strings.TrimRight(s.MediaPrefix, "/") + "/"
		r.PathPrefix(prefix).Handler(http.StripPrefix(prefix, http.FileServer(http.Dir(s.MediaDir)))).Methods(http.MethodGet)
	}
	return r
}

func recoverer(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().
						Interface("panic", rec).
						Bytes("stack", debug.Stack()).
						Str("path", r.URL.Path).
						Msg("handler panicked")
					writeError(w, log, http.StatusInternalServerError, "エラーが発生しました。", "")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
