package config

const (
	loginRouteVar        = "ROUTE_LOGIN"
	homeRouteVar         = "ROUTE_HOME"
	unauthorizedRouteVar = "ROUTE_UNAUTHORIZED"
)

type Routes struct {
	v *values
}

var _ RouteConfig = Routes{}

func (r Routes) GetLoginRoute() string {
	return r.v.get(loginRouteVar, "/login")
}

func (r Routes) GetHomeRoute() string {
	return r.v.get(homeRouteVar, "/")
}

func (r Routes) GetUnauthorizedRoute() string {
	return r.v.get(unauthorizedRouteVar, "/unauthorized")
}
