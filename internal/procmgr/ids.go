package procmgr

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// adjective-noun id generation keeps ExecSession ids human-readable
// in operator-facing logs instead of raw uuids.
var adjectives = []string{
	"quiet", "brisk", "amber", "lucid", "bold", "calm", "eager", "mellow",
	"swift", "steady", "vivid", "dusky", "keen", "solid", "gentle", "crisp",
}

var nouns = []string{
	"falcon", "river", "cedar", "ember", "otter", "quartz", "harbor", "maple",
	"comet", "badger", "willow", "granite", "heron", "canyon", "lichen", "tundra",
}

func newID() (string, error) {
	a, err := randomIndex(len(adjectives))
	if err != nil {
		return "", err
	}
	n, err := randomIndex(len(nouns))
	if err != nil {
		return "", err
	}
	suffix, err := randomIndex(10000)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", adjectives[a], nouns[n], suffix), nil
}

func randomIndex(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("generate random index: %w", err)
	}
	return int(idx.Int64()), nil
}
