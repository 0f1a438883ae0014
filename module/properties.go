package module

import (
	"bufio"
	"bytes"
	"io/ioutil"
	"os"
	"sort"
	"strings"
)

const ServerPropertiesFileName = "server.properties"

// ReadProperties parses a java properties file the way the server writes
// it: one key=value per line, # and ! start comments.
func ReadProperties(path string) (map[string]string, error) {
	bb, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	props := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(bb))
	for scanner.Scan() {
		key, value, ok := splitProperty(scanner.Text())
		if ok {
			props[key] = value
		}
	}
	return props, scanner.Err()
}

func splitProperty(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' || line[0] == '!' {
		return "", "", false
	}
	i := strings.IndexAny(line, "=:")
	if i < 0 {
		return line, "", true
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

// RewriteProperties sets the given keys in the properties file at path,
// keeping the order, comments and every other key. Keys which are not in
// the file yet are appended. It reports whether the file changed.
func RewriteProperties(path string, changes map[string]string) (bool, error) {
	bb, err := ioutil.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	done := make(map[string]bool, len(changes))
	var out []string
	changed := false
	scanner := bufio.NewScanner(bytes.NewReader(bb))
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := splitProperty(line)
		newValue, want := changes[key]
		if !ok || !want {
			out = append(out, line)
			continue
		}
		done[key] = true
		if value != newValue {
			changed = true
			line = key + "=" + newValue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}

	missing := make([]string, 0, len(changes))
	for key := range changes {
		if !done[key] {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	for _, key := range missing {
		changed = true
		out = append(out, key+"="+changes[key])
	}

	if !changed {
		return false, nil
	}
	content := strings.Join(out, "\n") + "\n"
	return true, ioutil.WriteFile(path, []byte(content), 0o644)
}
