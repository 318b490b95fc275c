package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

func mainKey(agentID string) string {
	return fmt.Sprintf("agent:%s:main", agentID)
}

func subagentKey(agentID string) (string, error) {
	token, err := randomHexToken(16)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("agent:%s:subagent:%s", agentID, token), nil
}

func randomHexToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
