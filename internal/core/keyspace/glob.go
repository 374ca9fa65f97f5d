package keyspace

// matchGlob reports whether s matches the glob pattern. Supported
// metacharacters are '*' (any run of characters, including none) and
// '?' (exactly one character); everything else matches literally.
//
// Iterative with backtracking to the most recent '*', so pathological
// patterns stay linear in len(pattern)*len(s).
func matchGlob(pattern, s string) bool {
	px, sx := 0, 0
	starPx, starSx := -1, -1

	for sx < len(s) {
		if px < len(pattern) {
			switch pattern[px] {
			case '*':
				// Record the star and try matching it to zero characters.
				starPx, starSx = px, sx
				px++
				continue
			case '?':
				px++
				sx++
				continue
			default:
				if pattern[px] == s[sx] {
					px++
					sx++
					continue
				}
			}
		}
		// Mismatch: backtrack, letting the last '*' absorb one more character.
		if starPx == -1 {
			return false
		}
		starSx++
		px = starPx + 1
		sx = starSx
	}

	// Only trailing stars may remain.
	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}
