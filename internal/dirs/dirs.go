package dirs

// StateDir is the root directory for all jobshell runtime state files,
// relative to the project working directory.
const StateDir = "._jobshell_state"

// ConfigDir is the directory where job manifests are loaded from,
// relative to the project working directory.
const ConfigDir = ".jobshell"

// OverridesFile is the path to the optional overrides file,
// relative to the project working directory.
const OverridesFile = ".jobshell.overrides.yaml"
