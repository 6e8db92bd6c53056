package judge

import "strings"

// Language describes how a submission is built and run inside its image.
// Run is executed by sh with the test input on stdin.
type Language struct {
	Image  string
	Source string
	Run    string
}

var languages = map[string]Language{
	"python":     {Image: "python:3.12-alpine", Source: "main.py", Run: "python3 main.py"},
	"javascript": {Image: "node:20-alpine", Source: "main.js", Run: "node main.js"},
	"go":         {Image: "golang:1.22-alpine", Source: "main.go", Run: "go run main.go"},
	"cpp":        {Image: "gcc:13", Source: "main.cpp", Run: "g++ -O2 -o /tmp/main main.cpp && /tmp/main"},
	"java":       {Image: "eclipse-temurin:21-jdk-alpine", Source: "Main.java", Run: "java Main.java"},
}

var aliases = map[string]string{
	"py":      "python",
	"python3": "python",
	"js":      "javascript",
	"node":    "javascript",
	"golang":  "go",
	"c++":     "cpp",
}

// LookupLanguage resolves a client-supplied language name.
func LookupLanguage(name string) (Language, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	lang, ok := languages[key]
	return lang, ok
}
