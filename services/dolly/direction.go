package dolly

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Tag is a canonical movement direction.
type Tag string

// The direction tags.
const (
	Forward  Tag = "forward"
	Backward Tag = "backward"
	Up       Tag = "up"
	Down     Tag = "down"
	Left     Tag = "left"
	Right    Tag = "right"
	Stop     Tag = "stop"
)

// synonyms maps each tag to the spoken tokens that select it. The sets must be disjoint.
var synonyms = map[Tag][]string{
	Forward:  {"forward", "forwards", "go forward"},
	Backward: {"back", "backward", "backwards", "go backward"},
	Up:       {"up"},
	Down:     {"down"},
	Left:     {"left", "go left"},
	Right:    {"right", "go right"},
	Stop:     {"stop", "brake"},
}

var synonymIndex = buildSynonymIndex(synonyms)

func buildSynonymIndex(sets map[Tag][]string) map[string]Tag {
	index := make(map[string]Tag, len(sets))
	for tag, words := range sets {
		for _, word := range words {
			if other, dup := index[word]; dup {
				panic(fmt.Sprintf("direction synonym %q maps to both %s and %s", word, other, tag))
			}
			index[word] = tag
		}
	}
	return index
}

// Resolve returns the direction a spoken token names. Case and surrounding space are ignored.
func Resolve(token string) (Tag, bool) {
	tag, ok := synonymIndex[strings.ToLower(strings.TrimSpace(token))]
	return tag, ok
}

// Tags returns every direction tag, sorted.
func Tags() []Tag {
	tags := lo.Keys(synonyms)
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Synonyms returns the tokens accepted for a tag.
func Synonyms(tag Tag) []string {
	return append([]string(nil), synonyms[tag]...)
}
