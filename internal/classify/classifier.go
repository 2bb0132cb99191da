// Package classify turns a filesystem path into a classification describing how
// the scanner orchestrator should file it: as a movie, a TV episode, an extra
// hanging off some ancestor, or a generic video with no further structure.
//
// Detection order and grammar are a direct port of the original classifier this
// spec was distilled from: extras first (folder name or filename suffix), then
// numbered TV (SxxEyy), then air-date TV, then movie, then generic fallback.
package classify

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type MediaType string

const (
	MediaExtra   MediaType = "extra"
	MediaTV      MediaType = "tv"
	MediaMovie   MediaType = "movie"
	MediaGeneric MediaType = "generic"
)

// ExtraInfo describes a detected extra (behind-the-scenes, trailer, etc).
type ExtraInfo struct {
	ExtraType string
	// Season/Episode are not populated by Classify; they are always nil on
	// the results it returns.
	Season  *int
	Episode *int
}

// TvInfo describes a detected TV episode.
type TvInfo struct {
	ShowName    string
	SourcePath  string
	Season      int
	Episode     int
	LastEpisode *int // set for SxxEyy-EzzZ / SxxEyy-zz ranges
	AirDate     *string
	Title       string
	Version     string
	Part        *int
	ExternalIDs map[string]string
}

// MovieInfo describes a detected movie.
type MovieInfo struct {
	Title       string
	SourcePath  string
	Year        int
	Version     string
	Part        *int
	ExternalIDs map[string]string
}

// GenericInfo describes a file the classifier could not place into any
// recognised structure.
type GenericInfo struct {
	Title string
}

// Result is the tagged union returned by Classify.
type Result struct {
	Type    MediaType
	Extra   *ExtraInfo
	TV      *TvInfo
	Movie   *MovieInfo
	Generic *GenericInfo
}

var (
	extraFolders = map[string]string{
		"behind the scenes": "behindthescenes",
		"deleted scenes":    "deleted",
		"interviews":        "interview",
		"scenes":            "scene",
		"samples":           "sample",
		"shorts":            "short",
		"featurettes":       "featurette",
		"clips":             "clip",
		"others":            "other",
		"extras":            "extra",
		"trailers":          "trailer",
	}
	extraSuffixes = []struct {
		suffix    string
		extraType string
	}{
		{"-behindthescenes", "behindthescenes"},
		{"-deleted", "deleted"},
		{"-featurette", "featurette"},
		{"-interview", "interview"},
		{"-scene", "scene"},
		{"-short", "short"},
		{"-trailer", "trailer"},
		{"-other", "other"},
	}

	tvSxxEyy     = regexp.MustCompile(`(?i)S(\d{1,3})E(\d{1,4})(?:-E?(\d{1,4}))?`)
	tvEyy        = regexp.MustCompile(`(?i)E(\d{1,4})(?:-(\d{1,4}))?`)
	tvEpyy       = regexp.MustCompile(`(?i)Ep(\d{1,4})(?:-(\d{1,4}))?`)
	seasonFolder = regexp.MustCompile(`(?i)^season\s*(\d+)$`)
	specialsRe   = regexp.MustCompile(`(?i)^specials?$`)

	dateISO = regexp.MustCompile(`(\d{4})[-.](\d{1,2})[-.](\d{1,2})`)
	dateDMY = regexp.MustCompile(`(\d{1,2})[-.](\d{1,2})[-.](\d{4})`)

	movieYearParens = regexp.MustCompile(`(.+?)\s*\((\d{4})\)`)
	movieYearDots   = regexp.MustCompile(`(.+?)\.(\d{4})`)

	versionBraces   = regexp.MustCompile(`\{edition-(.+?)\}`)
	versionDash     = regexp.MustCompile(`\s*-\s*([^-]+?)(?:\s*-\s*|$)`)
	versionBrackets = regexp.MustCompile(`\s*-\s*\[([^\]]+)\]`)
	partPattern     = regexp.MustCompile(`(?i)\s*-\s*\{?(cd|dvd|part|pt|disc|disk)\s*#?(\d+)\}?`)
	externalID      = regexp.MustCompile(`(?i)[\[{](imdb|tmdb|tvdb)(?:id)?[:\- ]([^\]}]+)[\]}]`)
)

// Classify inspects fullPath (and its ancestor directory names) and returns a
// classification. fullPath need not exist on disk; only the string is parsed.
func Classify(fullPath string) Result {
	dir, file := filepath.Split(fullPath)
	ext := filepath.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	folders := splitFolders(dir)

	if info := detectExtraFolder(folders); info != nil {
		return Result{Type: MediaExtra, Extra: info}
	}
	if info := detectExtraSuffix(stem); info != nil {
		return Result{Type: MediaExtra, Extra: info}
	}
	if tv := detectNumberedTV(stem, folders, fullPath); tv != nil {
		return Result{Type: MediaTV, TV: tv}
	}
	if tv := detectDateTV(stem, folders, fullPath); tv != nil {
		return Result{Type: MediaTV, TV: tv}
	}
	if mv := detectMovie(stem, folders, fullPath); mv != nil {
		return Result{Type: MediaMovie, Movie: mv}
	}
	return Result{Type: MediaGeneric, Generic: &GenericInfo{Title: cleanTitle(stem)}}
}

func splitFolders(dir string) []string {
	dir = strings.Trim(dir, string(filepath.Separator))
	if dir == "" {
		return nil
	}
	parts := strings.Split(dir, string(filepath.Separator))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func detectExtraFolder(folders []string) *ExtraInfo {
	for _, f := range folders {
		if t, ok := extraFolders[strings.ToLower(f)]; ok {
			return &ExtraInfo{ExtraType: t}
		}
	}
	return nil
}

func detectExtraSuffix(stem string) *ExtraInfo {
	lower := strings.ToLower(stem)
	for _, s := range extraSuffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return &ExtraInfo{ExtraType: s.extraType}
		}
	}
	return nil
}

// detectNumberedTV covers SxxEyy in the filename, season-folder+Eyy/Epyy, and
// specials-folder+Eyy/Epyy (forced season 0).
func detectNumberedTV(stem string, folders []string, fullPath string) *TvInfo {
	if m := tvSxxEyy.FindStringSubmatchIndex(stem); m != nil {
		season := atoi(stem[m[2]:m[3]])
		episode := atoi(stem[m[4]:m[5]])
		var last *int
		if m[6] >= 0 {
			v := atoi(stem[m[6]:m[7]])
			last = &v
		}
		tv := &TvInfo{Season: season, Episode: episode, LastEpisode: last}
		finishTV(tv, stem, folders, fullPath, m[1])
		return tv
	}

	immediateParent := lastFolder(folders)
	if immediateParent != "" {
		if sm := seasonFolder.FindStringSubmatch(immediateParent); sm != nil {
			if m := matchEpisodeMarker(stem); m != nil {
				tv := &TvInfo{Season: atoi(sm[1]), Episode: atoi(stem[m[2]:m[3]])}
				if m[4] >= 0 {
					v := atoi(stem[m[4]:m[5]])
					tv.LastEpisode = &v
				}
				finishTV(tv, stem, folders, fullPath, m[1])
				return tv
			}
		}
		if specialsRe.MatchString(immediateParent) {
			if m := matchEpisodeMarker(stem); m != nil {
				tv := &TvInfo{Season: 0, Episode: atoi(stem[m[2]:m[3]])}
				finishTV(tv, stem, folders, fullPath, m[1])
				return tv
			}
		}
	}
	return nil
}

// matchEpisodeMarker tries the bare Eyy pattern, then the Epyy pattern,
// against stem and returns the first submatch-index hit.
func matchEpisodeMarker(stem string) []int {
	if m := tvEyy.FindStringSubmatchIndex(stem); m != nil {
		return m
	}
	return tvEpyy.FindStringSubmatchIndex(stem)
}

func lastFolder(folders []string) string {
	if len(folders) == 0 {
		return ""
	}
	return folders[len(folders)-1]
}

func detectDateTV(stem string, folders []string, fullPath string) *TvInfo {
	var year, month, day int
	var matchEnd int
	if m := dateISO.FindStringSubmatchIndex(stem); m != nil {
		year, month, day = atoi(stem[m[2]:m[3]]), atoi(stem[m[4]:m[5]]), atoi(stem[m[6]:m[7]])
		matchEnd = m[1]
	} else if m := dateDMY.FindStringSubmatchIndex(stem); m != nil {
		day, month, year = atoi(stem[m[2]:m[3]]), atoi(stem[m[4]:m[5]]), atoi(stem[m[6]:m[7]])
		matchEnd = m[1]
	} else {
		return nil
	}

	season := year
	if immediateParent := lastFolder(folders); immediateParent != "" {
		if sm := seasonFolder.FindStringSubmatch(immediateParent); sm != nil {
			season = atoi(sm[1])
		}
	}
	episode := daysSinceEpoch(year, month, day)
	airDate := formatDate(year, month, day)

	tv := &TvInfo{Season: season, Episode: episode, AirDate: &airDate}
	finishTV(tv, stem, folders, fullPath, matchEnd)
	return tv
}

func finishTV(tv *TvInfo, stem string, folders []string, fullPath string, afterIdx int) {
	tv.ShowName = extractShowName(folders, stem)
	tv.SourcePath = findSourcePath(folders, fullPath)
	tv.ExternalIDs = parseExternalIDs(stem)
	suffix := stem[afterIdx:]
	version, title, part := parseSuffixTV(suffix)
	tv.Version = version
	tv.Title = title
	tv.Part = part
}

func detectMovie(stem string, folders []string, fullPath string) *MovieInfo {
	var title string
	var year, matchEnd int
	if m := movieYearParens.FindStringSubmatchIndex(stem); m != nil {
		title = stem[m[2]:m[3]]
		year = atoi(stem[m[4]:m[5]])
		matchEnd = m[1]
	} else if m := movieYearDots.FindStringSubmatchIndex(stem); m != nil {
		title = strings.ReplaceAll(stem[m[2]:m[3]], ".", " ")
		year = atoi(stem[m[4]:m[5]])
		matchEnd = m[1]
	} else {
		return nil
	}

	suffix := stem[matchEnd:]
	version, part := parseSuffixMovie(suffix)
	return &MovieInfo{
		Title:       cleanTitle(title),
		SourcePath:  findSourcePath(folders, fullPath),
		Year:        year,
		Version:     version,
		Part:        part,
		ExternalIDs: parseExternalIDs(stem),
	}
}

func parseSuffixTV(suffix string) (version, title string, part *int) {
	if m := versionBraces.FindStringSubmatch(suffix); m != nil {
		version = m[1]
	} else if m := versionDash.FindStringSubmatch(suffix); m != nil {
		title = strings.TrimSpace(m[1])
	} else if m := versionBrackets.FindStringSubmatch(suffix); m != nil {
		version = m[1]
	}
	if m := partPattern.FindStringSubmatch(suffix); m != nil {
		v := atoi(m[2])
		part = &v
	}
	return
}

func parseSuffixMovie(suffix string) (version string, part *int) {
	if m := versionBraces.FindStringSubmatch(suffix); m != nil {
		version = m[1]
	} else if m := versionDash.FindStringSubmatch(suffix); m != nil {
		version = strings.TrimSpace(m[1])
	} else if m := versionBrackets.FindStringSubmatch(suffix); m != nil {
		version = m[1]
	}
	if m := partPattern.FindStringSubmatch(suffix); m != nil {
		v := atoi(m[2])
		part = &v
	}
	return
}

func parseExternalIDs(s string) map[string]string {
	matches := externalID.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make(map[string]string, len(matches))
	for _, m := range matches {
		out[strings.ToLower(m[1])] = m[2]
	}
	return out
}

// extractShowName walks folders in reverse, skipping season-folder and
// specials entries, and returns the first folder name that qualifies. If no
// folder qualifies, it falls back to the filename stem with TV markers
// stripped.
func extractShowName(folders []string, stem string) string {
	for i := len(folders) - 1; i >= 0; i-- {
		f := folders[i]
		if seasonFolder.MatchString(f) || specialsRe.MatchString(f) {
			continue
		}
		return cleanTitle(f)
	}
	stripped := tvSxxEyy.ReplaceAllString(stem, "")
	stripped = tvEyy.ReplaceAllString(stripped, "")
	return cleanTitle(stripped)
}

// findSourcePath returns the folder path to use as this item's migration key:
// everything up to (but not including) a season folder, if one is present
// among folders; otherwise the full folder path. Absolute-vs-relative is
// preserved based on fullPath.
func findSourcePath(folders []string, fullPath string) string {
	seasonIdx := -1
	for i, f := range folders {
		if seasonFolder.MatchString(f) {
			seasonIdx = i
			break
		}
	}
	abs := strings.HasPrefix(fullPath, string(filepath.Separator))
	var kept []string
	if seasonIdx > 0 {
		kept = folders[:seasonIdx]
	} else {
		kept = folders
	}
	joined := strings.Join(kept, string(filepath.Separator))
	if abs {
		return string(filepath.Separator) + joined
	}
	return joined
}

func cleanTitle(s string) string {
	s = strings.ReplaceAll(s, ".", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.TrimSpace(s)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func formatDate(year, month, day int) string {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

// daysSinceEpoch returns the signed day count from 1970-01-01 to the given
// calendar date. Negative for dates before the epoch.
func daysSinceEpoch(year, month, day int) int {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(epoch).Hours() / 24)
}
