package api

// EngineVersion identifies the build in response headers and health output.
const EngineVersion = "dev"
