// Parses flags and configures logging for the xforge driver.
//
// The driver accepts the following flags:
//
//	-q, --quiet     Suppress informational output.
//	-d, --debug     Enable debug output.
//
// Flags override build-time defaults set via linker flags. After parsing,
// the global logger is reconfigured to reflect the final level before the
// selected command runs.
package cli
