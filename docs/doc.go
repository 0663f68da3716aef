// Package docs provides generated OpenAPI documentation.
//
// reportsum API
//
//	@title			reportsum API
//	@version		1.0
//	@description	Submit PDF operational reports and retrieve structured summaries.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/reportsum
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/reportsum/serve.go -o ./swagger --parseDependency --parseInternal
