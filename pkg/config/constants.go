package config

const (
	EnvPrefix = "IDEALGW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "IDEALGW_DB_DSN"
	EnvDBHost = "IDEALGW_DB_HOST"
	EnvDBUser = "IDEALGW_DB_USER"
	EnvDBName = "IDEALGW_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
