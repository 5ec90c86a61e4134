package recordstore

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/models"
)

// FileServer is the serving side of the record endpoint, backed by a
// JSON file on disk. GET returns the record (empty default when the
// file is absent), PUT replaces it, any other verb is rejected.
type FileServer struct {
	mu     sync.Mutex
	path   string
	logger *logrus.Logger
}

// NewFileServer creates a record endpoint backed by the given file.
func NewFileServer(path string, logger *logrus.Logger) *FileServer {
	return &FileServer{path: path, logger: logger}
}

func (s *FileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		s.handleGet(w)
	case http.MethodPut:
		s.handlePut(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(map[string]string{"error": "Method not allowed"})
	}
}

func (s *FileServer) handleGet(w http.ResponseWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			json.NewEncoder(w).Encode(models.Record{Messages: map[string][]models.Message{}})
			return
		}
		s.logger.WithError(err).Error("Failed to read record file")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Read failed"})
		return
	}
	w.Write(data)
}

func (s *FileServer) handlePut(w http.ResponseWriter, r *http.Request) {
	var record models.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid data"})
		return
	}

	data, err := json.MarshalIndent(&record, "", "  ")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Encode failed"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		s.logger.WithError(err).Error("Failed to create record directory")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Write failed"})
		return
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		s.logger.WithError(err).Error("Failed to write record file")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Write failed"})
		return
	}

	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}
