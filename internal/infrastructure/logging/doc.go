// Package logging configures log/slog for Gift Planner Core.
//
// Records are JSON by default and text when logging.format is "text". Every
// record carries service=giftplanner and the build version:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log credentials. The database engine logs SQL only when its debug
// switch is on, and receives Discard() otherwise.
package logging
