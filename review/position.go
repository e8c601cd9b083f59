package review

import (
	"regexp"
	"strconv"
	"strings"
)

// PositionMap maps a line number in the new version of a file to its
// position within the file's patch text. Position is the 1-based count of
// physical patch lines, hunk headers included, which is how GitHub anchors
// inline review comments. Lines that only exist in the old version of the
// file have no entry.
type PositionMap map[int]int

// hunkHeaderPattern matches unified diff hunk headers like "@@ -10,5 +10,6 @@".
var hunkHeaderPattern = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// BuildPositionMap computes the position map for one file's patch fragment.
// A patch with no hunk headers yields an empty map: nothing in that file
// can carry an inline comment.
func BuildPositionMap(patch string) PositionMap {
	result := make(PositionMap)
	if patch == "" {
		return result
	}

	position := 0
	newLine := 0
	inHunk := false

	// A trailing newline is not an extra patch line.
	for _, line := range strings.Split(strings.TrimSuffix(patch, "\n"), "\n") {
		position++

		if matches := hunkHeaderPattern.FindStringSubmatch(line); matches != nil {
			newStart, _ := strconv.Atoi(matches[1])
			newLine = newStart - 1
			inHunk = true
			continue
		}

		if !inHunk {
			continue
		}

		if strings.HasPrefix(line, "-") {
			// Removed line: it has no line number in the new file.
			continue
		}
		if strings.HasPrefix(line, "\\") {
			// "\ No newline at end of file" counts as a position but
			// not as a line in the new file.
			continue
		}

		// Added and context lines both advance the new-file line counter.
		newLine++
		result[newLine] = position
	}

	return result
}
