package signature

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
)

// parseCommitteeLines parses `<name> <hex-pubkey>` lines into dst, skipping
// blank lines and lines starting with '#'.
func parseCommitteeLines(raw []byte, dst map[string][]byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		fields := bytes.Fields(line)
		if len(fields) != 2 {
			return fmt.Errorf("line %d: expected `<name> <hex-pubkey>`, got %q", lineNo, line)
		}
		name := string(fields[0])
		key, err := hex.DecodeString(string(fields[1]))
		if err != nil {
			return fmt.Errorf("line %d: decode hex public key: %w", lineNo, err)
		}
		dst[name] = key
	}
	return scanner.Err()
}
