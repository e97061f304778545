// Package ffmpeg assembles and supervises external encoder invocations.
//
// Build turns a planner tier into the full argument vector for a
// size-controlled HEVC encode; BuildFallback covers sources that defeated
// probing. Executor runs the command, follows the -progress stream for
// percent and ETA reporting, kills encodes that stop reporting or whose
// context ends, and attaches the throttle governor so a long encode cannot
// monopolize the host. Non-zero exits come back as *EncodeError with
// captured stderr, which IsCorruptSource classifies for the pipeline's
// skip-permanently decision.
package ffmpeg
