package main

// General API documentation for swaggo. Run `swag init -g cmd/tensord/docs.go` to generate docs.
//
// @title           tensord API
// @version         1.0
// @description     HTTP API for tensor vector arithmetic and catalog-driven model inference.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
