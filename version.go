package serval

// Version is the language/runtime version reported by the CLI and REPL.
const Version = "0.3.0"
