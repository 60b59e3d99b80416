package server

import (
	"fmt"
	"log"
	"os/exec"
	"runtime"
)

// chromeCandidates are tried before the platform opener so the map gets a
// browser with websocket support.
var chromeCandidates = map[string][]string{
	"linux":   {"google-chrome", "chrome", "chromium-browser", "chromium"},
	"darwin":  {"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"},
	"windows": {`C:\Program Files\Google\Chrome\Application\chrome.exe`, `C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`},
}

// OpenBrowser launches url in Chrome when available, otherwise in the
// default browser. It does not wait for the browser to exit.
func OpenBrowser(url string) error {
	for _, name := range chromeCandidates[runtime.GOOS] {
		if path, err := exec.LookPath(name); err == nil {
			if err := exec.Command(path, url).Start(); err == nil {
				log.Printf("[browser] opened %s in %s", url, path)
				return nil
			}
		}
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("browser: open %s: %w", url, err)
	}
	log.Printf("[browser] opened %s", url)
	return nil
}
