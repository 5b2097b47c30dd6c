package markdown

// langByCode and codeByLang implement the fixed Code-block language
// table from spec §6 (SPEC_FULL §6 extends it with the common set a
// real vault would exercise). Unknown codes emit no language fence;
// unknown names map to codeByLang["plain text"] (1).
var langByCode = map[int]string{
	1:  "plain text",
	7:  "bash",
	9:  "c",
	12: "cpp",
	17: "css",
	20: "diff",
	22: "dockerfile",
	24: "git",
	25: "go",
	28: "html",
	29: "ini",
	30: "java",
	31: "javascript",
	33: "json",
	40: "lua",
	42: "makefile",
	49: "python",
	50: "r",
	52: "rust",
	53: "sass",
	54: "scala",
	55: "scheme",
	56: "shell",
	58: "sql",
	59: "typescript",
	60: "vbscript",
	61: "visual basic",
	63: "yaml",
	64: "xml",
}

var codeByLang = func() map[string]int {
	m := make(map[string]int, len(langByCode))
	for code, name := range langByCode {
		m[name] = code
	}
	// Fenced-code-block info strings commonly use short aliases that
	// differ from the display name above; map the ones a vault is
	// likely to contain onto the same code.
	m["js"] = codeOf("javascript")
	m["ts"] = codeOf("typescript")
	m["py"] = codeOf("python")
	m["golang"] = codeOf("go")
	m["sh"] = codeOf("shell")
	m["yml"] = codeOf("yaml")
	m["text"] = 1
	m[""] = 1
	return m
}()

func codeOf(name string) int {
	for code, n := range langByCode {
		if n == name {
			return code
		}
	}
	return 1
}

// LanguageCode maps a fenced-code-block info string to its integer
// code. Unknown names map to 1 (plain text).
func LanguageCode(name string) int {
	if code, ok := codeByLang[name]; ok {
		return code
	}
	return 1
}

// LanguageName maps an integer code back to its canonical name. ok is
// false for unknown codes, in which case the emitter omits the
// language from the fence entirely.
func LanguageName(code int) (name string, ok bool) {
	name, ok = langByCode[code]
	return name, ok
}
