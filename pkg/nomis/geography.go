package nomis

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// gssDigits is the numeric width of a GSS code (E09000023).
const gssDigits = 8

// GeographyRanges formats GSS codes for a geography qualifier. Codes are
// grouped by their country letter and sorted; runs of three or more
// consecutive codes collapse to "first...last", shorter runs are listed.
// Codes that are not GSS-shaped are appended unchanged in input order.
func GeographyRanges(codes []string) string {
	byPrefix := make(map[byte][]int)
	var prefixes []byte
	var other []string
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		p, n, ok := parseGSS(code)
		if !ok {
			if code != "" && !slices.Contains(other, code) {
				other = append(other, code)
			}
			continue
		}
		if _, seen := byPrefix[p]; !seen {
			prefixes = append(prefixes, p)
		}
		byPrefix[p] = append(byPrefix[p], n)
	}
	slices.Sort(prefixes)

	var parts []string
	for _, p := range prefixes {
		nums := byPrefix[p]
		slices.Sort(nums)
		nums = slices.Compact(nums)
		for i := 0; i < len(nums); {
			j := i
			for j+1 < len(nums) && nums[j+1] == nums[j]+1 {
				j++
			}
			switch j - i {
			case 0:
				parts = append(parts, formatGSS(p, nums[i]))
			case 1:
				parts = append(parts, formatGSS(p, nums[i]), formatGSS(p, nums[j]))
			default:
				parts = append(parts, formatGSS(p, nums[i])+"..."+formatGSS(p, nums[j]))
			}
			i = j + 1
		}
	}
	return strings.Join(append(parts, other...), ",")
}

func parseGSS(code string) (byte, int, bool) {
	if len(code) != gssDigits+1 || code[0] < 'A' || code[0] > 'Z' {
		return 0, 0, false
	}
	for i := 1; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return 0, 0, false
		}
	}
	n, err := strconv.Atoi(code[1:])
	if err != nil {
		return 0, 0, false
	}
	return code[0], n, true
}

func formatGSS(prefix byte, n int) string {
	return fmt.Sprintf("%c%0*d", prefix, gssDigits, n)
}
