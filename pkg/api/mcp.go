package api

import (
	"github.com/hazyhaar/geolookup/pkg/kit"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers the geolookup MCP tools on the server.
func RegisterMCPTools(srv *server.MCPServer, s *Service) {
	registerFindRoutes(srv, s)
	registerFilteredGeocodes(srv, s)
	registerAvailableGeographies(srv, s)
	registerGeographyKeys(srv, s)
	registerListCollections(srv, s)
}

func decodeRoutesReq(args map[string]any) routesReq {
	return routesReq{
		Start:            kit.StringArg(args, "start"),
		End:              kit.StringArg(args, "end"),
		LocalAuthorities: kit.ListArg(args, "local_authorities"),
	}
}

func registerFindRoutes(srv *server.MCPServer, s *Service) {
	tool := mcp.NewTool("find_routes",
		mcp.WithDescription("Find the shortest chains of lookup tables joining one geography code column to another (e.g. WD22CD to OA21CD)."),
		mcp.WithString("start", mcp.Required(), mcp.Description("Starting code column, e.g. WD22CD")),
		mcp.WithString("end", mcp.Required(), mcp.Description("Ending code column, e.g. OA21CD")),
		mcp.WithString("local_authorities", mcp.Description("Comma-separated local authority names (e.g. Lewisham,Southwark)")),
	)

	kit.RegisterMCPTool(srv, tool, routesEndpoint(s), func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r := decodeRoutesReq(req.GetArguments())
		return &kit.MCPDecodeResult{Request: &r}, nil
	})
}

func registerFilteredGeocodes(srv *server.MCPServer, s *Service) {
	tool := mcp.NewTool("filtered_geocodes",
		mcp.WithDescription("Join the lookup tables of the shortest routes and return the resulting geocode tables, filtered to the given local authorities."),
		mcp.WithString("start", mcp.Required(), mcp.Description("Starting code column, e.g. WD22CD")),
		mcp.WithString("end", mcp.Required(), mcp.Description("Ending code column, e.g. OA21CD")),
		mcp.WithString("local_authorities", mcp.Description("Comma-separated local authority names")),
		mcp.WithNumber("routes", mcp.Description("How many routes to execute (default 3)")),
	)

	kit.RegisterMCPTool(srv, tool, geocodesEndpoint(s), func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		return &kit.MCPDecodeResult{Request: &geocodesReq{
			routesReq: decodeRoutesReq(args),
			Routes:    kit.IntArg(args, "routes", 0),
		}}, nil
	})
}

func registerAvailableGeographies(srv *server.MCPServer, s *Service) {
	tool := mcp.NewTool("available_geographies",
		mcp.WithDescription("List the geography code columns available in the lookup tables, optionally for one collection/year."),
		mcp.WithString("collection", mcp.Description("Collection (year folder) to restrict to")),
	)

	kit.RegisterMCPTool(srv, tool, geographiesEndpoint(s), func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &geographiesReq{Collection: kit.StringArg(req.GetArguments(), "collection")}}, nil
	})
}

func registerGeographyKeys(srv *server.MCPServer, s *Service) {
	tool := mcp.NewTool("geography_keys",
		mcp.WithDescription("Describe the geography code prefixes (WD ward, LSOA, OA output area...) and how to build a code column name."),
	)

	kit.RegisterMCPTool(srv, tool, geographyKeysEndpoint(s), func(_ mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	})
}

func registerListCollections(srv *server.MCPServer, s *Service) {
	tool := mcp.NewTool("list_collections",
		mcp.WithDescription("List the lookup collections (year folders) known to the catalog."),
	)

	kit.RegisterMCPTool(srv, tool, collectionsEndpoint(s), func(_ mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	})
}
