/*
Package provider resolves template names against a fixed root directory on the
local filesystem and exposes the read, stat and freshness checks a template
engine needs to decide whether compiled output is stale.

A Provider holds nothing but its canonical root path, so every call goes to the
filesystem directly. Go does not cache stat results, so the modification times
it reports always reflect the file's current state.

The package also carries two maintenance helpers, Clean and Rm, for clearing a
compile cache directory while leaving hidden files (such as .gitkeep) alone.
*/
package provider
