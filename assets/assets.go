package assets

import "embed"

// IndexFile is the front-end document served at "/".
const IndexFile = "index.html"

//go:embed index.html
var Dir embed.FS
