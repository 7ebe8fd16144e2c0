package services

import "fmt"

// Manifest templates per base runtime. The %s placeholder takes the image
// name. Versions are pinned; "latest" is rejected at validation time.
var manifestTemplates = map[string]string{
	"python": `image:
  name: %s
  base:
    runtime: python
    version: "3.11.9"
  workdir: /app
  packages:
    - libnss3
    - libatk-bridge2.0-0
    - libcups2
    - libdrm2
    - libgtk-3-0
    - libgbm1
    - libasound2
    - libxss1
    - libxtst6
    - fonts-liberation
  dependencies:
    manifest: requirements.txt
  browser:
    engine: chromium
    revision: "1181205"
  entrypoint:
    - python
    - app.py
`,
	"node": `image:
  name: %s
  base:
    runtime: node
    version: "20.12.2"
  workdir: /app
  packages:
    - libnss3
    - libatk-bridge2.0-0
    - libcups2
    - libdrm2
    - libgtk-3-0
    - libgbm1
    - libasound2
    - libxss1
    - libxtst6
    - fonts-liberation
  dependencies:
    manifest: requirements.txt
  browser:
    engine: chromium
    revision: "1181205"
  entrypoint:
    - node
    - app.js
`,
}

// starterRequirements seeds the dependency manifest next to a fresh
// kiln.yaml so the first build has something to install.
const starterRequirements = `requests==2.31.0
beautifulsoup4==4.12.3
`

func manifestTemplate(runtime string) (string, error) {
	tmpl, ok := manifestTemplates[runtime]
	if !ok {
		return "", fmt.Errorf("unsupported runtime %q (supported: python, node)", runtime)
	}
	return tmpl, nil
}

// SupportedRuntimes lists the runtimes init can scaffold, for prompts.
func SupportedRuntimes() []string {
	return []string{"python", "node"}
}
