package matchconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// NumPlayers is fixed: every match is one player against one opponent.
const NumPlayers = 2

// Config is the settings file a lobby reads when it is created. Field names are
// the keys the framework expects.
type Config struct {
	NumPlayers int    `json:"numPlayers"`
	Threads    int    `json:"threads"`
	BoardSize  int    `json:"boardSize"`
	Time       int    `json:"time"`
	TurnLength int    `json:"turnLength"`
	Path1      string `json:"path1"`
	Path2      string `json:"path2"`
}

// Settings are the match parameters shared by every match of a run.
type Settings struct {
	Threads    int
	BoardSize  int
	Time       int
	TurnLength int
}

func New(s Settings, path1, path2 string) Config {
	return Config{
		NumPlayers: NumPlayers,
		Threads:    s.Threads,
		BoardSize:  s.BoardSize,
		Time:       s.Time,
		TurnLength: s.TurnLength,
		Path1:      path1,
		Path2:      path2,
	}
}

// Write replaces the file at path. The new content is written next to it and
// renamed into place, so a lobby never sees a partially written file.
func Write(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding match config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating match config: %w", err)
	}
	tmpName := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing match config: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing match config: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing match config: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing match config %s: %w", path, err)
	}
	return nil
}

func Read(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err = json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decoding match config %s: %w", path, err)
	}
	return cfg, nil
}
