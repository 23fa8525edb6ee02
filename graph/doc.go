// Package graph calls Microsoft Graph with an access token.
//
//	client, err := graph.New()
//	if err != nil {
//	    return err
//	}
//	resp, err := client.Call(ctx, accessToken, "me")
//
// Failures, including non-2xx answers, match core.ErrGraphCallFailed. The
// status and body of a rejected call are available through *StatusError:
//
//	var status *graph.StatusError
//	if errors.As(err, &status) {
//	    fmt.Println(status.StatusCode, status.Body)
//	}
package graph
