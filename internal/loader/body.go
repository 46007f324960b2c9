package loader

import "os"

// LoadBody reads the whole file at path and returns it verbatim.
func LoadBody(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", wrap("body", path, err)
	}
	return string(data), nil
}
