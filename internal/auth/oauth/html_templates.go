package oauth

// LoginSuccessHTML is served to the browser once the callback delivered a code.
const LoginSuccessHTML = `<!doctype html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Authentication successful</title>
</head>
<body>
    <p>Authentication successful. Return to your terminal to continue.</p>
</body>
</html>
`

// LoginFailedHTML is served when the provider redirected back with an error.
const LoginFailedHTML = `<!doctype html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Authentication failed</title>
</head>
<body>
    <p>Authentication failed. Return to your terminal for details.</p>
</body>
</html>
`
