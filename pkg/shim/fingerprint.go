package shim

import (
	"sort"
	"strings"

	"github.com/clasper-run/clasper/internal/model"
)

// toolAliases rewrites raw tool names onto the canonical set the control
// plane's policies are written against (spec §4.6).
var toolAliases = map[string]string{
	"read_file":    "read",
	"write_file":   "write",
	"delete_file":  "delete",
	"http_request": "web_search",
}

// normalizeTool applies the fixed alias table, leaving unknown tool names
// untouched.
func normalizeTool(tool string) string {
	if alias, ok := toolAliases[tool]; ok {
		return alias
	}
	return tool
}

// packageManagerTokens are argv0 values recognized as package managers for
// both commandClass and context.package_manager.
var packageManagerTokens = map[string]bool{
	"npm": true, "npx": true, "yarn": true, "pnpm": true,
	"pip": true, "pip3": true, "poetry": true, "uv": true,
	"apt": true, "apt-get": true, "brew": true, "cargo": true, "gem": true,
}

var scriptRuntimeTokens = map[string]bool{
	"node": true, "python": true, "python3": true, "ruby": true, "perl": true, "bash": true, "sh": true, "zsh": true,
}

var networkCLITokens = map[string]bool{
	"curl": true, "wget": true, "ssh": true, "scp": true, "nc": true, "ftp": true,
}

// commandClass maps a shell argv0 to a coarse bucket (spec §4.6).
func commandClass(argv0 string) string {
	switch {
	case argv0 == "":
		return "none"
	case packageManagerTokens[argv0]:
		return "package_manager"
	case scriptRuntimeTokens[argv0]:
		return "script_runtime"
	case argv0 == "git":
		return "git"
	case networkCLITokens[argv0]:
		return "network_cli"
	case argv0 == "rm" || argv0 == "mv" || argv0 == "cp" || argv0 == "chmod" || argv0 == "chown":
		return "shell_fs"
	default:
		return argv0
	}
}

// elevatedPrivilegeTokens mark a command as running with elevated
// privileges when present anywhere in argv.
var elevatedPrivilegeTokens = map[string]bool{
	"sudo": true, "--privileged": true,
}

// deriveContext builds the RequestContext the control plane evaluates
// policies against from the raw, adapter-specific tool arguments (spec
// §4.6 "Context mapping").
func deriveContext(tool string, args map[string]interface{}) model.RequestContext {
	ctx := model.RequestContext{}

	if pathVal, ok := stringArg(args, "path", "file", "cwd"); ok {
		ctx.Targets.Paths = []string{pathVal}
	}
	if urlVal, ok := stringArg(args, "url"); ok {
		ctx.Targets.Hosts = []string{hostOf(urlVal)}
		ctx.ExternalNetwork = true
	}

	if cmd, ok := stringArg(args, "command"); ok {
		argv := strings.Fields(cmd)
		ctx.Exec.Argv = argv
		if len(argv) > 0 {
			ctx.Exec.Argv0 = argv[0]
		}
		if cwd, ok := stringArg(args, "cwd"); ok {
			ctx.Exec.Cwd = cwd
		}
		for _, tok := range argv {
			if elevatedPrivilegeTokens[tok] {
				ctx.ElevatedPrivileges = true
			}
			if packageManagerTokens[tok] && ctx.PackageManager == "" {
				ctx.PackageManager = tok
			}
		}
	}

	ctx.WritesFiles = isWriteFamily(tool)
	writesPossible := ctx.WritesFiles || isExecFamily(tool)
	ctx.SideEffects = model.SideEffects{
		WritesPossible:  writesPossible,
		NetworkPossible: ctx.ExternalNetwork,
	}
	return ctx
}

func isWriteFamily(tool string) bool {
	switch tool {
	case "write", "delete", "write_file", "delete_file":
		return true
	default:
		return false
	}
}

func isExecFamily(tool string) bool {
	switch tool {
	case "exec", "shell", "shell.exec":
		return true
	default:
		return false
	}
}

func stringArg(args map[string]interface{}, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := args[k].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func hostOf(rawURL string) string {
	s := rawURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/:"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// sessionKey picks the first present key from the invocation context,
// preferring an explicit session over agent/thread identity, and never a
// per-call id (spec §4.6).
func sessionKey(invocationCtx map[string]interface{}) string {
	for _, key := range []string{"sessionKey", "sessionId", "agentId", "threadId"} {
		if v, ok := invocationCtx[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// targetsKey is the sorted, deduped, lowercased set of target paths/hosts.
func targetsKey(t model.Targets) string {
	seen := make(map[string]bool)
	var all []string
	for _, p := range append(append([]string{}, t.Paths...), t.Hosts...) {
		lp := strings.ToLower(p)
		if !seen[lp] {
			seen[lp] = true
			all = append(all, lp)
		}
	}
	sort.Strings(all)
	return strings.Join(all, ",")
}

// fingerprint builds the deterministic key used to group retries of the
// same logical request (spec §4.6).
func fingerprint(adapterID, normalizedTool, session, targets, class string) string {
	return strings.Join([]string{adapterID, normalizedTool, session, targets, class}, "::")
}
