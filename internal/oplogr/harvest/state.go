package harvest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ResumeState records where a harvest should continue after a restart.
type ResumeState struct {
	NextPage  int       `json:"next_page"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StateStore persists ResumeState as JSON. A zero StateStore (empty path)
// neither loads nor saves anything.
type StateStore struct {
	Path string
}

// Load returns the stored state, or page 1 if the file is missing.
func (s StateStore) Load() (*ResumeState, error) {
	if s.Path == "" {
		return &ResumeState{NextPage: 1}, nil
	}

	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ResumeState{NextPage: 1}, nil
		}
		return nil, fmt.Errorf("open state: %w", err)
	}
	defer f.Close()

	var st ResumeState
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if st.NextPage < 1 {
		st.NextPage = 1
	}
	return &st, nil
}

// Save writes state atomically using a temp file + rename.
func (s StateStore) Save(state ResumeState) error {
	if s.Path == "" {
		return nil
	}

	tmp := s.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(state); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode state: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp state: %w", err)
	}

	return os.Rename(tmp, s.Path)
}
