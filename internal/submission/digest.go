package submission

import (
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"assesscore/internal/question"
)

// Digest fingerprints an answer map. Ids are sorted and values trimmed and
// upper-cased, so equivalent resubmissions hash alike.
func Digest(answers map[int64]string) string {
	ids := make([]int64, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	for _, id := range ids {
		v := question.NormalizeKey(answers[id])
		if v == "" {
			continue
		}
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
