package ecloud

// Version of ecollect
const Version = "v1.1.0"
