/*
Package backend implements the drinks backend

A backend manages a drink table in a Postgres or SQLite database and provides a
RESTful-API for it:

	GET /drinks                public, short view of all drinks
	GET /drinks-detail         permission get:drinks-detail, long view of all drinks
	POST /drinks               permission post:drinks, creates a drink
	PATCH /drinks/{id}         permission patch:drinks, updates title and/or recipe
	DELETE /drinks/{id}        permission delete:drinks, deletes a drink
	GET /version               public, the build version

The short view of a drink lists the color and the parts of every ingredient,
the long view also its name:

	{
	  "id": 1,
	  "title": "Water",
	  "recipe": [{"color": "blue", "name": "Water", "parts": 1}]
	}

Successful responses carry "success": true. Errors are returned as

	{"success": false, "error": 404, "message": "resource not found"}

Authorization failures additionally carry a "code" and the message of the
access gate.

Request bodies are validated against the JSON schemas embedded from the schemas
directory. After a change is committed, it is handed to the optional
core.Notifier.
*/
package backend
